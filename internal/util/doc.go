// Package util provides common utility functions used across the authkit
// library.
//
// This package contains helper functions for string manipulation and other
// shared operations that don't fit into domain-specific packages.
//
// Key utilities:
//   - SafeTruncate: Safely truncates strings for logging sensitive data
//   - NormalizeURL: Trailing-slash-insensitive URL comparison
package util
