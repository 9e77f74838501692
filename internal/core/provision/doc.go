// Package provision contains pure planning functions that turn a parsed
// stack manifest into the engine resources to create: names, start order,
// container plans, and database connection parameters. Nothing here touches
// the engine; the shell executes what this package plans.
package provision
