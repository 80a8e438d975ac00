package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/digitalocean/godo"

	"hostbill/internal/model"
)

const dropletImage = "ubuntu-24-04-x64"

// sampleWindow is the monitoring window a usage snapshot covers. It matches
// the sampler's freshness TTL so summed snapshots approximate total transfer.
const sampleWindow = 5 * time.Minute

// DigitalOcean adapts the godo client to the Compute contract. Droplet IDs
// are carried as decimal strings in ProviderID.
type DigitalOcean struct {
	client *godo.Client
}

func NewDigitalOcean(token string) *DigitalOcean {
	return &DigitalOcean{client: godo.NewFromToken(token)}
}

func (d *DigitalOcean) CreateServer(ctx context.Context, req CreateServerRequest) (*Instance, error) {
	droplet, _, err := d.client.Droplets.Create(ctx, &godo.DropletCreateRequest{
		Name:   req.Name,
		Region: req.Region,
		Size:   req.SizeSlug,
		Image:  godo.DropletCreateImage{Slug: dropletImage},
		Tags:   []string{"hostbill"},
	})
	if err != nil {
		return nil, providerErr("create droplet", err)
	}

	inst := &Instance{ProviderID: strconv.Itoa(droplet.ID)}
	if droplet.Networks != nil {
		for _, n := range droplet.Networks.V4 {
			if n.Type == "public" {
				inst.IPAddress = n.IPAddress
			}
		}
	}
	return inst, nil
}

func (d *DigitalOcean) DestroyServer(ctx context.Context, providerID string) error {
	id, err := strconv.Atoi(providerID)
	if err != nil {
		return fmt.Errorf("bad provider id %q: %w", providerID, err)
	}
	resp, err := d.client.Droplets.Delete(ctx, id)
	if err != nil {
		// Already gone is success: teardown must be idempotent.
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		var errResp *godo.ErrorResponse
		if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
			return nil
		}
		return providerErr("delete droplet", err)
	}
	return nil
}

func (d *DigitalOcean) ResizeServer(ctx context.Context, providerID, sizeSlug string) error {
	id, err := strconv.Atoi(providerID)
	if err != nil {
		return fmt.Errorf("bad provider id %q: %w", providerID, err)
	}
	if _, _, err := d.client.DropletActions.Resize(ctx, id, sizeSlug, false); err != nil {
		return providerErr("resize droplet", err)
	}
	return nil
}

func (d *DigitalOcean) FetchUsage(ctx context.Context, providerID string) (*UsageSnapshot, error) {
	id, err := strconv.Atoi(providerID)
	if err != nil {
		return nil, fmt.Errorf("bad provider id %q: %w", providerID, err)
	}

	droplet, _, err := d.client.Droplets.Get(ctx, id)
	if err != nil {
		return nil, providerErr("get droplet", err)
	}

	now := time.Now().UTC()
	req := &godo.DropletMetricsRequest{
		HostID: providerID,
		Start:  now.Add(-sampleWindow),
		End:    now,
	}

	snap := &UsageSnapshot{}

	load1, err := d.metric(ctx, req, d.client.Monitoring.GetDropletLoad1)
	if err != nil {
		return nil, err
	}
	snap.LoadOne = load1
	if snap.LoadFive, err = d.metric(ctx, req, d.client.Monitoring.GetDropletLoad5); err != nil {
		return nil, err
	}
	if snap.LoadFifteen, err = d.metric(ctx, req, d.client.Monitoring.GetDropletLoad15); err != nil {
		return nil, err
	}

	// load1 normalized by vCPU count, clamped to a percentage.
	if droplet.Vcpus > 0 {
		snap.CPUPct = clampPct(load1 / float64(droplet.Vcpus) * 100)
	}

	freeMem, err := d.metric(ctx, req, d.client.Monitoring.GetDropletFreeMemory)
	if err != nil {
		return nil, err
	}
	totalMem, err := d.metric(ctx, req, d.client.Monitoring.GetDropletTotalMemory)
	if err != nil {
		return nil, err
	}
	if totalMem > 0 {
		snap.MemoryPct = clampPct((totalMem - freeMem) / totalMem * 100)
	}

	freeDisk, err := d.metric(ctx, req, d.client.Monitoring.GetDropletFilesystemFree)
	if err != nil {
		return nil, err
	}
	sizeDisk, err := d.metric(ctx, req, d.client.Monitoring.GetDropletFilesystemSize)
	if err != nil {
		return nil, err
	}
	if sizeDisk > 0 {
		snap.DiskPct = clampPct((sizeDisk - freeDisk) / sizeDisk * 100)
	}

	if snap.NetInBytes, err = d.bandwidth(ctx, req, "inbound"); err != nil {
		return nil, err
	}
	if snap.NetOutBytes, err = d.bandwidth(ctx, req, "outbound"); err != nil {
		return nil, err
	}

	if created, parseErr := time.Parse(time.RFC3339, droplet.Created); parseErr == nil {
		snap.UptimeSeconds = int64(now.Sub(created).Seconds())
	}

	return snap, nil
}

type metricFn func(context.Context, *godo.DropletMetricsRequest) (*godo.MetricsResponse, *godo.Response, error)

func (d *DigitalOcean) metric(ctx context.Context, req *godo.DropletMetricsRequest, fn metricFn) (float64, error) {
	resp, _, err := fn(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("%w: droplet metrics: %v", model.ErrMetricFetch, err)
	}
	return lastValue(resp), nil
}

// bandwidth converts the window's average public-interface rate (Mbps) into
// bytes transferred during the window.
func (d *DigitalOcean) bandwidth(ctx context.Context, req *godo.DropletMetricsRequest, direction string) (int64, error) {
	resp, _, err := d.client.Monitoring.GetDropletBandwidth(ctx, &godo.DropletBandwidthMetricsRequest{
		DropletMetricsRequest: *req,
		Interface:             "public",
		Direction:             direction,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: droplet bandwidth: %v", model.ErrMetricFetch, err)
	}
	mbps := lastValue(resp)
	return int64(mbps * 1e6 / 8 * sampleWindow.Seconds()), nil
}

func lastValue(resp *godo.MetricsResponse) float64 {
	if resp == nil {
		return 0
	}
	var v float64
	for _, stream := range resp.Data.Result {
		if len(stream.Values) > 0 {
			v = float64(stream.Values[len(stream.Values)-1].Value)
		}
	}
	return v
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func providerErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrProvider, op, err)
}
