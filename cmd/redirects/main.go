// Command redirects maintains the kernel's function redirection table.
//
// Kernel functions annotated with a "//go:redirect-from <symbol>" comment
// replace the named runtime symbol at boot. The count subcommand reports how
// many redirections exist so the linker script can reserve room for the
// table; populate fills the table inside a linked kernel image with the
// resolved symbol addresses.
package main

func main() {
	execute()
}
