package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

func main() {
	connStr := flag.String("db", os.Getenv("DATABASE_URL"), "postgres connection string")
	olderThan := flag.Duration("older-than", 30*24*time.Hour, "delete journal entries older than this")
	flag.Parse()

	if *connStr == "" {
		fmt.Println("DATABASE_URL or -db is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", *connStr)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	before := time.Now().Add(-*olderThan)
	res, err := db.Exec("DELETE FROM dispatch_journal WHERE created_at < $1", before)
	if err != nil {
		panic(err)
	}

	n, _ := res.RowsAffected()
	fmt.Printf("Deleted %d journal entries created before %s\n", n, before.Format(time.RFC3339))
}
