package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/configurer"
	"github.com/nci/sdi/processing"
	"github.com/nci/sdi/servicedef"
)

func newRegistry(t *testing.T, specs ...servicedef.Specification) *Registry {
	procs := processing.NewRegistry()
	require.NoError(t, processing.RegisterBuiltins(procs, ""))
	r := New(configurer.Deps{
		Dir:       configuration.NewDirectory(t.TempDir()),
		Cache:     configuration.NewMemoryCache(),
		Processes: procs,
	})
	for _, spec := range specs {
		r.Register(spec, DefaultBinding())
	}
	return r
}

func TestUnregisteredSpecIsNotRunning(t *testing.T) {
	r := newRegistry(t, servicedef.WMS)

	for _, spec := range servicedef.Specifications {
		_, err := r.NewConfigurer(spec)
		if spec == servicedef.WMS {
			require.NoError(t, err)
			continue
		}
		require.True(t, errors.Is(err, configuration.ErrNotRunningService), "%s: got %v", spec, err)
		var nr *configuration.NotRunningServiceError
		require.True(t, errors.As(err, &nr))
		require.Equal(t, spec, nr.Spec)
	}

	err := r.Start(context.Background(), servicedef.CSW, "cat")
	require.True(t, errors.Is(err, configuration.ErrNotRunningService))
	_, err = r.Instances(servicedef.SOS)
	require.True(t, errors.Is(err, configuration.ErrNotRunningService))
}

func TestServices(t *testing.T) {
	r := newRegistry(t, servicedef.WPS, servicedef.WMS)
	services := r.Services()
	require.Len(t, services, 2)
	require.Equal(t, servicedef.WMS, services[0].Spec)
	require.Equal(t, []string{"1.0.0"}, services[1].Versions)
}

func TestStartStopRestart(t *testing.T) {
	r := newRegistry(t, servicedef.WPS)
	ctx := context.Background()
	c, err := r.NewConfigurer(servicedef.WPS)
	require.NoError(t, err)
	require.NoError(t, c.CreateInstance("proc", nil))

	err = r.Start(ctx, servicedef.WPS, "absent")
	require.True(t, errors.Is(err, configuration.ErrNoSuchInstance), "got %v", err)

	insts, err := r.Instances(servicedef.WPS)
	require.NoError(t, err)
	require.Len(t, insts, 1)
	require.Equal(t, configuration.StatusNotStarted, insts[0].Status)

	require.NoError(t, r.Start(ctx, servicedef.WPS, "proc"))
	require.True(t, r.Running(servicedef.WPS, "proc"))
	w, err := r.Worker(servicedef.WPS, "proc")
	require.NoError(t, err)
	require.IsType(t, &configuration.ProcessContext{}, w.Configuration())

	require.NoError(t, r.Restart(ctx, servicedef.WPS, "proc"))
	require.True(t, r.Running(servicedef.WPS, "proc"))

	require.NoError(t, r.Stop(servicedef.WPS, "proc"))
	err = r.Stop(servicedef.WPS, "proc")
	require.True(t, errors.Is(err, errors.NotFound), "got %v", err)

	insts, err = r.Instances(servicedef.WPS)
	require.NoError(t, err)
	require.Equal(t, configuration.StatusStopped, insts[0].Status)
}

func TestStartAllRecordsErrors(t *testing.T) {
	r := newRegistry(t, servicedef.CSW, servicedef.WMS)
	ctx := context.Background()

	csw, err := r.NewConfigurer(servicedef.CSW)
	require.NoError(t, err)
	require.NoError(t, csw.CreateInstance("good", nil))
	require.NoError(t, csw.CreateInstance("bad", nil))
	require.NoError(t, csw.Configure("bad", &configuration.Automatic{
		Format:        configuration.FormatFilesystem,
		DataDirectory: "/nonexistent/sdi/data",
	}))

	wms, err := r.NewConfigurer(servicedef.WMS)
	require.NoError(t, err)
	require.NoError(t, wms.CreateInstance("map", nil))

	err = r.StartAll(ctx)
	require.Error(t, err)

	insts, err := r.Instances(servicedef.CSW)
	require.NoError(t, err)
	status := map[string]configuration.Instance{}
	for _, inst := range insts {
		status[inst.Identifier] = inst
	}
	require.Equal(t, configuration.StatusError, status["bad"].Status)
	require.Contains(t, status["bad"].Message, "data source")
	require.Equal(t, configuration.StatusStarted, status["good"].Status)
	require.True(t, r.Running(servicedef.WMS, "map"))

	r.StopAll()
	require.False(t, r.Running(servicedef.WMS, "map"))
}

// countingWorker counts workers built and closed for one binding.
type countingWorker struct {
	*ConfiguredWorker
	closed *int32
}

func (w *countingWorker) Close() error {
	atomic.AddInt32(w.closed, 1)
	return w.ConfiguredWorker.Close()
}

func TestConcurrentStartsBuildOneWorker(t *testing.T) {
	r := newRegistry(t)
	var opened, closed int32
	r.Register(servicedef.WMS, Binding{
		Configurer: configurer.New,
		Worker: func(ctx context.Context, c configurer.Configurer, id string) (Worker, error) {
			atomic.AddInt32(&opened, 1)
			time.Sleep(10 * time.Millisecond)
			w, err := NewConfiguredWorker(ctx, c, id)
			if err != nil {
				return nil, err
			}
			return &countingWorker{ConfiguredWorker: w.(*ConfiguredWorker), closed: &closed}, nil
		},
	})
	c, err := r.NewConfigurer(servicedef.WMS)
	require.NoError(t, err)
	require.NoError(t, c.CreateInstance("map", nil))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Start(context.Background(), servicedef.WMS, "map")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&opened))

	require.NoError(t, r.Restart(context.Background(), servicedef.WMS, "map"))
	require.NoError(t, r.Stop(servicedef.WMS, "map"))
	require.Equal(t, atomic.LoadInt32(&opened), atomic.LoadInt32(&closed))
}
