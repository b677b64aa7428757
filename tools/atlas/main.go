// atlas 的 external_schema 使用此程式輸出資料表定義：
//
//	data "external_schema" "gorm" {
//	  program = ["go", "run", "./tools/atlas"]
//	}
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"ariga.io/atlas-provider-gorm/gormschema"

	"geargrid/models"
)

func errExit(format string, args ...interface{}) {
	if !strings.HasSuffix(format, "\n") {
		format = format + "\n"
	}
	_, _ = fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

func main() {
	stmts, err := gormschema.New("postgres").Load(models.All()...)
	if err != nil {
		errExit("failed to load gorm schema: %v", err)
	}
	if _, err := io.WriteString(os.Stdout, stmts); err != nil {
		errExit("failed to write schema: %v", err)
	}
}
