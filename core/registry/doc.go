// Package registry resolves source product names to tracker project keys.
package registry
