package db_test

import (
	"context"
	"testing"

	"github.com/alwitt/strongbox/db"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
)

func TestDBFolders(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	_, store := newTestDBStore(t)

	tenant := ulid.Make().String()

	// Root folder
	infra, err := store.CreateFolder(utCtx, models.Folder{
		ID: uuid.NewString(), TenantID: tenant, Name: "infra", Path: "/infra",
	})
	assert.Nil(err)

	// Duplicate path
	_, err = store.CreateFolder(utCtx, models.Folder{
		ID: uuid.NewString(), TenantID: tenant, Name: "infra", Path: "/infra",
	})
	assert.ErrorIs(err, models.ErrConflict)

	// Child folder
	dbPath, err := models.BuildFolderPath(infra.Path, "databases")
	assert.Nil(err)
	databases, err := store.CreateFolder(utCtx, models.Folder{
		ID: uuid.NewString(), TenantID: tenant, Name: "databases", ParentID: &infra.ID, Path: dbPath,
	})
	assert.Nil(err)
	assert.Equal("/infra/databases", databases.Path)

	// Parent in another tenant is not visible
	{
		_, err := store.CreateFolder(utCtx, models.Folder{
			ID:       uuid.NewString(),
			TenantID: ulid.Make().String(),
			Name:     "x",
			ParentID: &infra.ID,
			Path:     "/infra/x",
		})
		assert.ErrorIs(err, models.ErrNotFound)
	}

	// Read back
	{
		entry, err := store.GetFolder(utCtx, tenant, databases.ID)
		assert.Nil(err)
		assert.Equal(infra.ID, *entry.ParentID)

		entry, err = store.GetFolderByPath(utCtx, tenant, "/infra/databases")
		assert.Nil(err)
		assert.Equal(databases.ID, entry.ID)

		_, err = store.GetFolder(utCtx, ulid.Make().String(), databases.ID)
		assert.ErrorIs(err, models.ErrNotFound)
	}

	// List
	{
		all, err := store.ListFolders(utCtx, tenant, db.FolderQueryFilter{})
		assert.Nil(err)
		assert.Len(all, 2)
		assert.Equal("/infra", all[0].Path)

		children, err := store.ListFolders(
			utCtx, tenant, db.FolderQueryFilter{TargetParentID: &infra.ID},
		)
		assert.Nil(err)
		assert.Len(children, 1)
		assert.Equal(databases.ID, children[0].ID)
	}

	// Credential placed in the folder
	{
		cred := newTestCredential(tenant, "pg")
		cred.FolderID = &databases.ID
		_, err := store.CreateCredential(utCtx, cred)
		assert.Nil(err)

		inFolder, err := store.ListCredentials(
			utCtx, tenant, db.CredentialQueryFilter{TargetFolderID: &databases.ID},
		)
		assert.Nil(err)
		assert.Len(inFolder, 1)
	}
}
