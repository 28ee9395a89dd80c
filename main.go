package main

import "github.com/ValentinKolb/phantom/cmd"

func main() {
	cmd.Execute()
}
