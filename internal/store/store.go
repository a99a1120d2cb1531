package store

import (
	"context"
	"fmt"
	"strings"

	"aquarium-monitor/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Options key layout for device documents
type Options struct {
	KeyPrefix     string // "aquarium:device:"
	StateSuffix   string // ":state"
	ChangesSuffix string // ":changes"
}

// DefaultOptions aquarium:device:{id}:state / aquarium:device:{id}:changes
func DefaultOptions() Options {
	return Options{
		KeyPrefix:     "aquarium:device:",
		StateSuffix:   ":state",
		ChangesSuffix: ":changes",
	}
}

// Store hands out per-device documents backed by Redis hashes
type Store struct {
	client *redis.Client
	opts   Options
	logger *zap.Logger
}

// New creates a Store
func New(client *redis.Client, opts Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		opts:   opts,
		logger: logger,
	}
}

// Document returns the document for deviceID; it is cheap and holds no connection
func (s *Store) Document(deviceID string) *Document {
	return &Document{
		client:         s.client,
		logger:         s.logger.With(zap.String("device_id", deviceID)),
		deviceID:       deviceID,
		stateKey:       fmt.Sprintf("%s%s%s", s.opts.KeyPrefix, deviceID, s.opts.StateSuffix),
		changesChannel: fmt.Sprintf("%s%s%s", s.opts.KeyPrefix, deviceID, s.opts.ChangesSuffix),
	}
}

// Seed replaces the whole document for deviceID; state must pass Validate
func (s *Store) Seed(ctx context.Context, deviceID string, state models.DeviceState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	doc := s.Document(deviceID)

	fields, sections, err := encodePatch(stateToPatch(state))
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, doc.stateKey)
		if len(fields) > 0 {
			pipe.HSet(ctx, doc.stateKey, fields)
		}
		pipe.Publish(ctx, doc.changesChannel, strings.Join(sections, ","))
		return nil
	})
	if err != nil {
		return connectivity("seed", err)
	}

	s.logger.Info("Seeded device state",
		zap.String("device_id", deviceID),
		zap.Int("field_count", len(fields)),
	)
	return nil
}

// DeviceIDs scans Redis for existing device documents
func (s *Store) DeviceIDs(ctx context.Context) ([]string, error) {
	pattern := fmt.Sprintf("%s*%s", s.opts.KeyPrefix, s.opts.StateSuffix)

	var ids []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := key[len(s.opts.KeyPrefix):]
		id = id[:len(id)-len(s.opts.StateSuffix)]
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, connectivity("scan", err)
	}
	return ids, nil
}
