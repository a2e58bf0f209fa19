package main

import "github.com/tcassar-diss/iptable/cmd"

func main() {
	cmd.Execute()
}
