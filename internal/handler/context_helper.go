package handler

import (
	"os"
	"time"
)

func fileModTime(file *os.File) time.Time {
	info, err := file.Stat()
	if err != nil {
		return time.Now()
	}
	return info.ModTime()
}
