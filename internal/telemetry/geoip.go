package telemetry

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP locates addresses with a MaxMind GeoLite2/GeoIP2 City database.
// Hostnames are resolved first; results are cached per address.
type GeoIP struct {
	reader *geoip2.Reader
	lookup func(host string) ([]net.IP, error)

	mu    sync.Mutex
	cache map[string][2]float64
}

// OpenGeoIP opens the database at path.
func OpenGeoIP(path string) (*GeoIP, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening geoip database %s: %w", path, err)
	}
	return &GeoIP{
		reader: reader,
		lookup: net.LookupIP,
		cache:  make(map[string][2]float64),
	}, nil
}

// Locate implements Geolocator.
func (g *GeoIP) Locate(address string) (float64, float64, bool) {
	g.mu.Lock()
	if c, ok := g.cache[address]; ok {
		g.mu.Unlock()
		return c[0], c[1], true
	}
	g.mu.Unlock()

	ip := net.ParseIP(address)
	if ip == nil {
		ips, err := g.lookup(address)
		if err != nil || len(ips) == 0 {
			return 0, 0, false
		}
		ip = ips[0]
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() {
		return 0, 0, false
	}

	record, err := g.reader.City(ip)
	if err != nil {
		return 0, 0, false
	}
	lat, lng := record.Location.Latitude, record.Location.Longitude
	if lat == 0 && lng == 0 {
		return 0, 0, false
	}

	g.mu.Lock()
	g.cache[address] = [2]float64{lat, lng}
	g.mu.Unlock()
	return lat, lng, true
}

// Close releases the database.
func (g *GeoIP) Close() error {
	return g.reader.Close()
}
