package driver_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/o3sim/timing/driver"
)

func runDriver(cfg driver.Config) *driver.Driver {
	engine := sim.NewSerialEngine()
	d := driver.NewDriver("Driver", engine, 1*sim.GHz, cfg)

	d.TickLater()
	Expect(engine.Run()).To(Succeed())

	return d
}

var _ = Describe("Driver", func() {
	var cfg driver.Config

	BeforeEach(func() {
		cfg = driver.DefaultConfig()
		cfg.Workload.NumInsts = 200
		cfg.Workload.Seed = 7
	})

	It("should run a workload to completion and drain", func() {
		d := runDriver(cfg)

		stats := d.Stats()
		Expect(stats.Inserted).To(Equal(uint64(200)))
		Expect(stats.Completed).To(Equal(uint64(200)))
		Expect(stats.Issued).To(BeNumerically(">=", stats.Completed))
		Expect(stats.Cycles).To(BeNumerically(">", uint64(0)))
		Expect(stats.IPC()).To(BeNumerically(">", 0.0))

		Expect(d.Unit().IsDrained()).To(BeTrue())
	})

	It("should count loads and stores in the unit", func() {
		d := runDriver(cfg)

		us := d.Unit().Stats()
		Expect(us.InsertedLoads).To(BeNumerically(">", uint64(0)))
		Expect(us.InsertedStores).To(BeNumerically(">", uint64(0)))
	})

	It("should survive injected squashes and still drain", func() {
		cfg.SquashEvery = 20
		d := runDriver(cfg)

		stats := d.Stats()
		Expect(stats.Squashes).To(BeNumerically(">", uint64(0)))
		Expect(stats.Inserted).To(Equal(uint64(200)))
		Expect(stats.Completed + stats.SquashedInsts).
			To(BeNumerically("<=", stats.Inserted))
		Expect(d.Unit().IsDrained()).To(BeTrue())
	})

	It("should handle a multi-threaded workload", func() {
		cfg.Workload.NumThreads = 4
		cfg.Memdep.NumThreads = 4
		d := runDriver(cfg)

		stats := d.Stats()
		Expect(stats.Completed).To(Equal(uint64(200)))
		Expect(d.Unit().IsDrained()).To(BeTrue())
	})

	It("should reproduce the same run for the same seed", func() {
		first := runDriver(cfg).Stats()
		second := runDriver(cfg).Stats()

		Expect(second).To(Equal(first))
	})
})

var _ = Describe("Config", func() {
	It("should load a configuration from a JSON file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "driver.json")
		data := `{
			"width": 2,
			"reg_ready_delay": 1,
			"load_latency": 3,
			"store_latency": 1,
			"workload": {"num_insts": 50, "num_threads": 2, "seed": 3},
			"memdep": {"num_threads": 2, "store_barrier_blocks_loads": false}
		}`
		Expect(os.WriteFile(path, []byte(data), 0644)).To(Succeed())

		cfg, err := driver.LoadConfig(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Width).To(Equal(2))
		Expect(cfg.Workload.NumInsts).To(Equal(50))
		Expect(cfg.Memdep.NumThreads).To(Equal(2))
		Expect(cfg.Memdep.StoreBarrierBlocksLoads).To(BeFalse())
	})

	It("should fail on a missing file", func() {
		_, err := driver.LoadConfig("no-such-file.json")
		Expect(err).To(HaveOccurred())
	})
})
