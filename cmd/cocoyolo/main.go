// Converts the person and vehicle annotations of a COCO detection dataset into a YOLO dataset
// with the rail safety class table.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:]))
}
