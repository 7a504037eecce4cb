package model_test

import (
	"github.com/jacentio/espalier/model"
	"github.com/jacentio/espalier/validate"
)

var (
	testAddress = model.Define("Address").
			Field("street", validate.String().Required()).
			Field("zip", validate.String()).
			MustBuild()

	testPost = model.Define("Post").
			PrimaryKey("pk").
			SecondaryKey("sk").
			Field("title", validate.String().Required()).
			Field("userId").
			MustBuild()

	testUser = model.Define("User").
			PrimaryKey("pk").
			SecondaryKey("sk").
			CreatedAt("createdAt").
			UpdatedAt("updatedAt").
			Field("email", validate.String().Format("email").Required()).
			Field("age", validate.Int().Tag("gte=0")).
			Field("org").
			Field("team").
			Alias("mail", "email").
			Composite("gsi1pk", []string{"org", "team"}, "#").
			HasOne("address", testAddress, model.RelationOptions{Nested: true}).
			HasMany("posts", testPost, model.RelationOptions{
			ForeignKey:     "userId",
			IndexName:      "byUser",
			ParentProperty: "author",
		}).
		MustBuild()
)

func validUser() model.Record {
	return model.Record{
		"pk":    "u1",
		"sk":    "profile",
		"email": "ada@example.com",
	}
}
