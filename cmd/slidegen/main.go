// Command slidegen renders slide decks and previews from local files.
package main

func main() {
	Execute()
}
