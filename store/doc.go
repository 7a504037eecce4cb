// Package store maps entity instances onto a single DynamoDB table.
//
// Every record is stored with its primary and secondary key tagged with the
// entity name ("User-42") and with an entity attribute naming its type, so
// many entity types can share one table and reads can rebuild the right type.
//
// # Key Features
//
//   - Cascading writes: a parent and its assigned linked children are written
//     in one transaction, each child carrying the parent's tagged key
//   - Create is an upsert; Update fails with [ErrNotFound] for missing records
//   - Automatic createdAt and updatedAt timestamps
//   - Entity filters merged into every query and scan
//   - Queries that return parents with their linked children attached
//   - Sequential cursors over paginated results
//
// # Usage
//
//	s, err := store.New(dynamodb.NewFromConfig(cfg), store.DefaultConfig("app"), User)
//	if err != nil {
//	    return err
//	}
//
//	u := model.New(User)
//	_ = u.Set("id", "42")
//	_ = u.Set("sk", "profile")
//	_ = u.Add("posts", model.Record{"id": "p1", "sk": "post", "title": "hello"})
//	if err := s.Create(ctx, u); err != nil {
//	    return err
//	}
//
//	c, err := s.Query(ctx, User, store.QueryInput{
//	    IndexName:                 "byUser",
//	    KeyConditionExpression:    "userId = :id",
//	    ExpressionAttributeValues: map[string]types.AttributeValue{":id": &types.AttributeValueMemberS{Value: s.Tag(User, "42")}},
//	    IncludeRelated:            true,
//	})
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - record to update or delete doesn't exist
//   - [ErrMissingKeys] - entity type declares no primary and secondary key
//   - [ErrTooManyItems] - cascading write exceeds the transaction limit
//   - [ErrCursorExhausted] - cursor has no more pages
//   - [ErrCursorBusy] - cursor is already fetching a page
//
// Validation failures surface as [model.ErrValidation]. Errors of the
// underlying client are returned unchanged.
package store
