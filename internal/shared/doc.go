// Package shared holds helpers used by more than one package that belong to
// no single layer. The testutil subpackage captures slog output so tests can
// assert on what the gate logged, including attributes bound with
// logger.With.
package shared
