package main

import "github.com/Another0Noob/vault-downloader/cmd"

func main() {
	cmd.Execute()
}
