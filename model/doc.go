// Package model declares entity types and the instances built from them.
//
// An entity type is described once with a [Builder] and frozen into a
// [Descriptor], the field registry every instance of the type shares:
//
//	Address := model.Define("Address").
//	    Field("street", validate.String().Required()).
//	    MustBuild()
//
//	User := model.Define("User").
//	    PrimaryKey("pk").
//	    SecondaryKey("sk").
//	    Field("email", validate.String().Format("email").Required()).
//	    Alias("mail", "email").
//	    Composite("gsi1pk", []string{"org", "team"}, "#").
//	    HasOne("address", Address, model.RelationOptions{Nested: true}).
//	    MustBuild()
//
// # Instances
//
// An [Instance] holds attribute values and is read and written through
// [Instance.Get] and [Instance.Set]. Instances may be invalid while being
// edited; [Instance.Validate] checks them against the composed [Descriptor.Schema].
//
// # Transformation
//
// [Descriptor.Transform] turns a raw attribute map into the record that is
// stored: undeclared keys are dropped, aliases resolved, nested relations
// inlined, linked relations removed and composite keys computed.
//
// # Relations
//
// Nested relations are stored inside the parent's record. Linked relations
// are stored as independent records carrying the parent's key in a foreign
// key attribute; see the store package for how they are written and read.
//
// # Errors
//
//   - [ErrDefinition] - inconsistent entity definition
//   - [ErrInvalidType] - relation assigned an unusable value
//   - [ErrValidation] - record or instance failed validation
//   - [ErrUnknownEntity] - stored record names no registered type
package model
