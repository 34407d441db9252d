package db

import (
	"fmt"
	"io"
	"time"
)

// PrintHistoryCLI writes recent master transitions to w, newest first.
func PrintHistoryCLI(w io.Writer, dbPath string, limit int) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	entries, err := ListHistory(dbConn, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no master transitions recorded")
		return nil
	}
	for _, e := range entries {
		status := "off"
		if e.Status {
			status = "on"
		}
		fmt.Fprintf(w, "%s  %s\n", e.Timestamp.Local().Format(time.RFC3339), status)
	}
	return nil
}
