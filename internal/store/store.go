package store

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrOutOfRange is returned for flash accesses outside the block.
	ErrOutOfRange = errors.New("offset outside configuration block")
	// ErrBlockSize is returned when a stored block has the wrong length.
	ErrBlockSize = errors.New("configuration block has wrong size")
)

// Flash is the non-volatile block holding the configuration. Programming
// can only clear bits; Erase sets every byte back to 0xFF.
type Flash interface {
	Erase() error
	Write(offset int, data []byte) error
	Read(offset int) (byte, error)
	Close() error
}

// ConfigStore loads and commits the persistent configuration. Every
// commit rewrites the whole block after a single erase.
type ConfigStore struct {
	flash  Flash
	logger *slog.Logger
}

// NewConfigStore wraps a flash block.
func NewConfigStore(flash Flash, logger *slog.Logger) *ConfigStore {
	return &ConfigStore{flash: flash, logger: logger.With("component", "store")}
}

// Load reads every field, substituting defaults for erased values.
func (s *ConfigStore) Load() (PersistentConfig, error) {
	var block [BlockSize]byte
	for i := range block {
		b, err := s.flash.Read(i)
		if err != nil {
			return Defaults(), fmt.Errorf("read offset %#02x: %w", i, err)
		}
		block[i] = b
	}
	return Decode(block), nil
}

// Commit erases the block and programs the complete configuration.
func (s *ConfigStore) Commit(cfg PersistentConfig) error {
	block := Encode(cfg)
	if err := s.flash.Erase(); err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	if err := s.flash.Write(0, block[:]); err != nil {
		return fmt.Errorf("program: %w", err)
	}
	s.logger.Debug("configuration committed")
	return nil
}

// FactoryReset commits the defaults and returns them.
func (s *ConfigStore) FactoryReset() (PersistentConfig, error) {
	cfg := Defaults()
	if err := s.Commit(cfg); err != nil {
		return cfg, err
	}
	s.logger.Info("factory reset committed")
	return cfg, nil
}

// Close releases the flash backend.
func (s *ConfigStore) Close() error {
	return s.flash.Close()
}
