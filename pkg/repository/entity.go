package repository

// Entity is the contract every persisted type implements with value receivers,
// so both T and *T satisfy it.
type Entity interface {
	// TableName returns the database table name for this entity.
	// It also identifies the entity type in the unit of work's registry and in cache keys.
	TableName() string

	// GetID returns the store-assigned identity, zero until the entity is created
	GetID() int
}

// BaseEntity supplies the integer identity. Embed it in entity structs.
type BaseEntity struct {
	ID int `gorm:"primaryKey" json:"id"`
}

func (e BaseEntity) GetID() int {
	return e.ID
}

// RelationshipAware allows entities to name the tables whose cached queries
// embed their rows, e.g. an order item invalidates cached orders.
type RelationshipAware interface {
	RelatedTables() []string
}
