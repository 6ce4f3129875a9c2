package settings

import (
	"os"
	"sync"

	"github.com/Archie3d/lora-relay-node/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const DefaultPort = 3

// Store keeps the current settings record and receives replacements from
// the link. It optionally persists the record to a JSON file.
type Store struct {
	port   int
	path   string
	logger *log.Logger

	mutex    sync.Mutex
	current  Record
	onChange []func(Record)
}

type Option func(*Store)

func WithPort(port int) Option {
	return func(s *Store) {
		s.port = port
	}
}

// WithFile persists every applied record to path.
func WithFile(path string) Option {
	return func(s *Store) {
		s.path = path
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		port:    DefaultPort,
		logger:  log.WithPrefix("settings"),
		current: DefaultRecord(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Load reads the persisted record. A missing file keeps the defaults.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	var record Record
	if err := types.LoadFromJsonFile(s.path, &record); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "load settings from %s error", s.path)
	}

	if err := record.Validate(); err != nil {
		return errors.Wrapf(err, "settings file %s", s.path)
	}

	s.mutex.Lock()
	s.current = record
	s.mutex.Unlock()

	return nil
}

func (s *Store) PacketPort() int {
	return s.port
}

func (s *Store) RecordSize() int {
	return RecordSize
}

func (s *Store) DataRateADR() byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.current.DataRateADR
}

func (s *Store) Current() Record {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.current
}

// OnChange registers fn to be called after a record was applied.
func (s *Store) OnChange(fn func(Record)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onChange = append(s.onChange, fn)
}

// ApplyDownlink replaces the current record. Invalid records are logged
// and ignored.
func (s *Store) ApplyDownlink(data []byte) {
	record, err := DecodeRecord(data)
	if err == nil {
		err = record.Validate()
	}

	if err != nil {
		s.logger.Warn("Settings downlink ignored", "err", err)
		return
	}

	s.mutex.Lock()
	s.current = record
	observers := append([]func(Record){}, s.onChange...)
	s.mutex.Unlock()

	s.logger.Info("Settings updated",
		"data_rate", record.DataRate(),
		"adr", record.ADR(),
		"send_interval", record.SendInterval,
	)

	if s.path != "" {
		if err := types.SaveToJsonFile(s.path, &record); err != nil {
			s.logger.Error("Failed to persist settings", "path", s.path, "err", err)
		}
	}

	for _, fn := range observers {
		fn(record)
	}
}

// Reset restores and applies the default record.
func (s *Store) Reset() {
	s.ApplyDownlink(DefaultRecord().Encode())
}
