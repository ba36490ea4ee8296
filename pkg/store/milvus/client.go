package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Config holds Milvus connection settings
type Config struct {
	Address     string        `yaml:"address"` // e.g. "localhost:19530"; empty disables context storage
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Collection  string        `yaml:"collection" default:"prediction_contexts"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"10s"`
	NList       int           `yaml:"nlist" default:"128"` // IVF cluster count
}

// Client stores and searches attention context vectors
type Client struct {
	conn  client.Client
	addr  string
	nlist int
}

// NewClient dials Milvus, giving up after cfg.DialTimeout
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	conn, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", cfg.Address, err)
	}
	nlist := cfg.NList
	if nlist <= 0 {
		nlist = 128
	}
	return &Client{conn: conn, addr: cfg.Address, nlist: nlist}, nil
}

// Address returns the server address
func (c *Client) Address() string {
	return c.addr
}

// Close closes the connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// HasCollection reports whether a collection exists
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	return c.conn.HasCollection(ctx, name)
}

// CreateIndex builds a cosine IVF_FLAT index on a vector field
func (c *Client) CreateIndex(ctx context.Context, collection, field string) error {
	idx, err := entity.NewIndexIvfFlat(entity.COSINE, c.nlist)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := c.conn.CreateIndex(ctx, collection, field, idx, false); err != nil {
		return fmt.Errorf("failed to index %s.%s: %w", collection, field, err)
	}
	return nil
}

// LoadCollection loads a collection so it can be searched
func (c *Client) LoadCollection(ctx context.Context, collection string) error {
	if err := c.conn.LoadCollection(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to load %s: %w", collection, err)
	}
	return nil
}
