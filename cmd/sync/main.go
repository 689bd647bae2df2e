package main

import "github.com/genos-program/airtable-supabase-sync/internal/app"

func main() {
	app.Execute()
}
