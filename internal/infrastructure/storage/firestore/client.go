// Package firestore is the Cloud Firestore storage backend.
//
// Transactions buffer their writes until the callback returns, so callers can
// keep reading after they have written (Firestore forbids reads after writes
// within one transaction). Reads see the buffered writes of their own transaction.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"motoledger/pkg/logger"
)

// Config holds the connection settings.
type Config struct {
	ProjectID string
	// CredentialsFile is optional; Application Default Credentials are used when empty.
	CredentialsFile string
	// Prefix is prepended to every collection name so several environments can share a project.
	Prefix string
}

// Client wraps the Firestore client with its settings.
type Client struct {
	Client    *firestore.Client
	ProjectID string
	prefix    string
}

// NewClient connects to Firestore. FIRESTORE_EMULATOR_HOST is honored by the SDK.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	logger.Info(ctx, "firestore connected", "project", cfg.ProjectID, "prefix", cfg.Prefix)
	return &Client{Client: client, ProjectID: cfg.ProjectID, prefix: cfg.Prefix}, nil
}

// Collection returns a collection reference with the configured prefix.
func (c *Client) Collection(name string) *firestore.CollectionRef {
	return c.Client.Collection(c.prefix + name)
}

// Ping checks connectivity with a cheap listing call.
// Firestore has no ping endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return errors.New("firestore client is nil")
	}
	it := c.Client.Collections(ctx)
	if _, err := it.Next(); err != nil && !isDone(err) {
		return fmt.Errorf("firestore ping failed: %w", err)
	}
	return nil
}

// Close closes the client.
func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
