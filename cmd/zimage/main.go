package main

import "github.com/unkn0wn-root/zimage/cmd/zimage/cmd"

func main() {
	cmd.Execute()
}
