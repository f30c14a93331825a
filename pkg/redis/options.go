package redis

import (
	"time"
)

// Namespace and context values used to build cache keys for the platform.
const (
	NamespaceAgora = "agora"
	ContextReview  = "review"
)

// Options holds the configuration for a Redis cache instance.
type Options struct {
	Addr         string
	Password     string
	DB           int
	Namespace    string
	Context      string
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultOptions returns sane defaults for a local Redis.
func DefaultOptions() *Options {
	return &Options{
		Addr:         "localhost:6379",
		Namespace:    NamespaceAgora,
		Context:      ContextReview,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
