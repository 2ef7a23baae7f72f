// Command zipimg builds and inspects the disk images loaded by the kernel at
// boot. A disk image is a stored-only ZIP archive laid out so that the
// kernel finds its end of central directory record inside the staging
// buffer.
package main

func main() {
	execute()
}
