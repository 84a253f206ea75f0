// Package config provides database connection configuration for the example
// application, with one constructor per supported database adapter.
package config
