// Command ordercheck audits sibling position density. Every course must
// hold its modules at positions 1..n with no gaps or duplicates, and the
// same holds for videos inside each module. Run it against a live
// database after migrations or manual data fixes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type scopeRow struct {
	ParentID string `db:"parent_id"`
	Position int    `db:"position"`
}

type violation struct {
	Scope    string
	ParentID string
	Detail   string
}

func main() {
	var (
		dsn     string
		verbose bool
	)

	flag.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.BoolVar(&verbose, "verbose", false, "Print every scanned parent")
	flag.Parse()

	if dsn == "" {
		log.Fatal("no dsn provided: pass -dsn or set DATABASE_URL")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close() //nolint:errcheck

	var violations []violation
	scopes := []struct {
		name  string
		query string
	}{
		{"module", `SELECT course_id AS parent_id, position FROM course_modules ORDER BY course_id, position`},
		{"video", `SELECT module_id AS parent_id, position FROM module_videos ORDER BY module_id, position`},
	}

	for _, scope := range scopes {
		var rows []scopeRow
		if err := db.Select(&rows, scope.query); err != nil {
			log.Fatalf("failed to scan %s positions: %v", scope.name, err)
		}
		found, scanned := check(scope.name, rows)
		violations = append(violations, found...)
		if verbose {
			fmt.Printf("%s: scanned %d parents, %d violations\n", scope.name, scanned, len(found))
		}
	}

	if len(violations) == 0 {
		fmt.Println("ordering OK: all sibling positions are dense")
		return
	}

	for _, v := range violations {
		fmt.Printf("VIOLATION %s parent=%s: %s\n", v.Scope, v.ParentID, v.Detail)
	}
	os.Exit(1)
}

// check walks rows grouped by parent (input is ordered) and flags any
// parent whose positions are not exactly 1..n.
func check(scope string, rows []scopeRow) ([]violation, int) {
	var violations []violation
	parents := 0

	for i := 0; i < len(rows); {
		j := i
		for j < len(rows) && rows[j].ParentID == rows[i].ParentID {
			j++
		}
		parents++

		want := 1
		for _, row := range rows[i:j] {
			if row.Position != want {
				violations = append(violations, violation{
					Scope:    scope,
					ParentID: row.ParentID,
					Detail:   fmt.Sprintf("expected position %d, found %d", want, row.Position),
				})
				break
			}
			want++
		}
		i = j
	}

	return violations, parents
}
