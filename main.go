/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package main

import "github.com/fulmenhq/reportdeploy/cmd"

func main() {
	cmd.Execute()
}
