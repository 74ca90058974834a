package protocol

// Command is a matched frame with its parameter decoded.
type Command struct {
	ID   CommandID
	Dest byte

	// Address is set for ParamHex templates.
	Address HostAddress
	// Digits holds the raw digit values of a ParamDecimal parameter,
	// most significant first.
	Digits [2]uint8
	// Value is the decoded ParamDecimal or ParamDigit parameter. Bytes
	// that are not ASCII digits decode to an unspecified value.
	Value uint8
}

// Match returns the first template, in table order, the frame is
// consistent with. A literal template matches when all seven bytes are
// equal; a parametric one when its prefix is equal and the frame diverges
// from the template at the parameter boundary.
func Match(f Frame) (Command, bool) {
	for i := range templates {
		if cmd, ok := templates[i].match(f); ok {
			return cmd, true
		}
	}
	return Command{}, false
}

func (t *Template) match(f Frame) (Command, bool) {
	for i := 0; i < t.Boundary; i++ {
		if f[i] != t.Body[i] {
			return Command{}, false
		}
	}
	cmd := Command{ID: t.ID, Dest: f.Dest()}
	if t.Param == ParamNone {
		return cmd, true
	}
	if f[t.Boundary] == t.Body[t.Boundary] {
		return Command{}, false
	}

	switch t.Param {
	case ParamHex:
		copy(cmd.Address[:], f[3:BodySize])
	case ParamDecimal:
		cmd.Digits = [2]uint8{f[5] - '0', f[6] - '0'}
		cmd.Value = cmd.Digits[0]*10 + cmd.Digits[1]
	case ParamDigit:
		cmd.Value = f[6] - '0'
	}
	return cmd, true
}

// Encode renders cmd back into a frame body.
func (c Command) Encode() (Frame, error) {
	t, ok := Lookup(c.ID)
	if !ok {
		return Frame{}, ErrUnknownCommand
	}
	body := []byte(t.Body)
	switch t.Param {
	case ParamHex:
		copy(body[3:], c.Address[:])
	case ParamDecimal:
		body[5] = '0' + c.Value/10%10
		body[6] = '0' + c.Value%10
	case ParamDigit:
		body[6] = '0' + c.Value%10
	}
	return NewFrame(string(body), c.Dest)
}
