package labels

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/logging"
)

func TestVocabularies(t *testing.T) {
	test.That(t, VOC, test.ShouldHaveLength, 21)
	test.That(t, VOC[VOCCat], test.ShouldEqual, "cat")
	test.That(t, VOC[VOCDog], test.ShouldEqual, "dog")

	test.That(t, COCO, test.ShouldHaveLength, 80)
	test.That(t, COCO[15], test.ShouldEqual, "cat")
	test.That(t, COCO[16], test.ShouldEqual, "dog")
}

func TestLookup(t *testing.T) {
	names := []string{"tench", "goldfish"}
	test.That(t, Lookup(names, 1), test.ShouldEqual, "goldfish")
	test.That(t, Lookup(names, 2), test.ShouldEqual, Unknown)
	test.That(t, Lookup(names, -1), test.ShouldEqual, Unknown)
	test.That(t, Lookup(nil, 0), test.ShouldEqual, Unknown)
}

func TestIsPet(t *testing.T) {
	for _, c := range []string{"cat", "Dog", "CAT", " dog "} {
		test.That(t, IsPet(c), test.ShouldBeTrue)
	}
	for _, c := range []string{"person", "hot dog", "catalog", ""} {
		test.That(t, IsPet(c), test.ShouldBeFalse)
	}
}

func TestParse(t *testing.T) {
	names, err := Parse(strings.NewReader("tench\r\ngoldfish\ngreat white shark\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, names, test.ShouldResemble, []string{"tench", "goldfish", "great white shark"})
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "tench\ngoldfish\n")
	}))
	defer srv.Close()

	names, err := Fetch(context.Background(), srv.URL, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, names, test.ShouldResemble, []string{"tench", "goldfish"})
}

func TestFetchOrEmptyDegrades(t *testing.T) {
	logger := logging.Discard()

	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	names := FetchOrEmpty(context.Background(), notFound.URL, time.Second, logger)
	test.That(t, names, test.ShouldNotBeNil)
	test.That(t, names, test.ShouldBeEmpty)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	names = FetchOrEmpty(context.Background(), slow.URL, 50*time.Millisecond, logger)
	test.That(t, names, test.ShouldBeEmpty)

	names = FetchOrEmpty(context.Background(), "http://127.0.0.1:0/labels.txt", time.Second, logger)
	test.That(t, names, test.ShouldBeEmpty)
}
