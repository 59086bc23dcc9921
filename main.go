package main

import "github.com/docsmithhq/docsmith-agent/cmd"

func main() {
	cmd.Execute()
}
