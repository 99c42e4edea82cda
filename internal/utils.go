package internal

import (
	"os"
	"runtime"
)

func GetBinaryDir() string {
	if runtime.GOOS == "windows" {
		return "C:\\Cognite\\BridgeCarousel"
	}
	currentDir, _ := os.Getwd()
	return currentDir
}
