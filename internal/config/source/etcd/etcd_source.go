// Package etcd loads shardgate configuration from etcd and watches it for
// changes, so topology and policy updates reach a running node without a
// restart.
package etcd

import (
	"context"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ferrodb/shardgate/internal/config"
)

// Source reads configuration bytes from a single etcd key.
type Source struct {
	client *clientv3.Client
	key    string

	mu     sync.Mutex
	closed bool
}

// New connects to etcd and verifies the cluster is reachable.
func New(cfg *config.EtcdConfig) (*Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("etcd config cannot be nil")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("etcd key cannot be empty")
	}

	clientConfig := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.Timeout,
	}
	if clientConfig.DialTimeout == 0 {
		clientConfig.DialTimeout = 5 * time.Second
	}
	if cfg.Username != "" {
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	client, err := clientv3.New(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientConfig.DialTimeout)
	defer cancel()
	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &Source{client: client, key: cfg.Key}, nil
}

// Get retrieves the current configuration bytes from etcd.
func (s *Source) Get(ctx context.Context) ([]byte, error) {
	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s from etcd: %w", s.key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("key %s not found in etcd", s.key)
	}
	return resp.Kvs[0].Value, nil
}

// Watch delivers the current configuration immediately, then every update to
// the key, until the context is cancelled. The channel is closed on exit.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	ch := make(chan []byte, 1)

	go func() {
		defer close(ch)

		if data, err := s.Get(ctx); err == nil {
			select {
			case ch <- data:
			case <-ctx.Done():
				return
			}
		}

		watchCh := s.client.Watch(ctx, s.key)
		for {
			select {
			case <-ctx.Done():
				return
			case resp, ok := <-watchCh:
				if !ok {
					return
				}
				if resp.Err() != nil {
					// Re-establish the watch after transient errors.
					time.Sleep(time.Second)
					watchCh = s.client.Watch(ctx, s.key)
					continue
				}
				for _, event := range resp.Events {
					if event.Type == clientv3.EventTypePut {
						select {
						case ch <- event.Kv.Value:
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}
	}()

	return ch, nil
}

// Close releases the etcd client.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
