// Command hookctl derives, frames and runs transfer-hook registry setups
// against a local ledger.
package main

func main() {
	Execute()
}
