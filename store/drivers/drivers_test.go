package drivers_test

import (
	"strings"
	"testing"

	"github.com/nuln/fstream/store/drivers"
)

func TestList(t *testing.T) {
	got := strings.Join(drivers.List(), ",")
	if got != "local,rclone,s3,sharded" {
		t.Fatalf("drivers = %s", got)
	}
}
