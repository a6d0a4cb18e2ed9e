// Package main - Atlas GORM migration support binary
//
// Prints the DDL of the vault tables for the dialect given as the first argument
// (sqlite when not given), for use as an Atlas external schema.
package main

import (
	"fmt"
	"os"

	"ariga.io/atlas-provider-gorm/gormschema"
	"github.com/alwitt/strongbox/db"
	"github.com/apex/log"
)

func main() {
	dialect := "sqlite"
	if len(os.Args) > 1 {
		dialect = os.Args[1]
	}
	stmts, err := gormschema.New(dialect).Load(db.VaultTables()...)
	if err != nil {
		log.WithError(err).WithField("dialect", dialect).Fatal("Failed to load GORM models")
	}
	fmt.Printf("%s\n", stmts)
}
