package main

import "github.com/dmitrijs2005/depmsg/internal/admin"

func main() {
	admin.Execute()
}
