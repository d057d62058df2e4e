// Package storage keeps uploaded audio files on local disk.
// Each upload gets a unique file reference inside the configured directory;
// references are opaque to the workflow and resolved back to paths here.
package storage
