package store

import "github.com/jacentio/espalier/model"

// MaxTransactItems is the item limit of one DynamoDB transaction.
const MaxTransactItems = 100

// Config holds configuration for the Store.
type Config struct {
	// TableName is the table every entity type is stored in. Required.
	TableName string

	// TagDelimiter separates the entity name from raw key values.
	// Default: "-" (keys are stored as "User-42")
	TagDelimiter string

	// ConsistentRead enables strongly consistent reads for Get and for queries
	// on the base table.
	// Default: true
	ConsistentRead bool

	// MaxTransactItems caps the items of one cascading write.
	// Default and max: 100
	MaxTransactItems int
}

// DefaultConfig returns defaults for a single shared table.
func DefaultConfig(table string) Config {
	return Config{
		TableName:        table,
		TagDelimiter:     "-",
		ConsistentRead:   true,
		MaxTransactItems: MaxTransactItems,
	}
}

// validate fills unset values and reports binding errors.
func (c *Config) validate() error {
	if c.TableName == "" {
		return ErrMissingTable
	}
	if c.TagDelimiter == "" {
		c.TagDelimiter = "-"
	}
	if c.MaxTransactItems < 1 || c.MaxTransactItems > MaxTransactItems {
		c.MaxTransactItems = MaxTransactItems
	}
	return nil
}

// EntityAttribute is the stored attribute naming a record's entity type.
const EntityAttribute = model.EntityAttribute
