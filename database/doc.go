// Package database opens and shares the bun connection used by the
// repositories. It also loads configuration, runs migrations and seed files,
// classifies driver errors and installs the query hooks.
package database
