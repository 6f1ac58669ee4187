package main

import "example.com/BoltServer/cmd"

func main() {
	cmd.Execute()
}
