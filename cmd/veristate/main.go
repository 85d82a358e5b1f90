// Command veristate model-checks the bundled example systems, serves the
// interactive state-space explorer, or runs example actors over real UDP.
//
// Usage:
//
//	veristate <check|check-bfs|check-dfs|check-simulation> <model> [args]
//	veristate explore <model> [address] [args]
//	veristate spawn pingpong
//
// Models: 2pc [RM_COUNT], paxos [CLIENT_COUNT] [NETWORK], pingpong [MAX_NAT]
//
// Defaults may also be supplied in veristate.yaml. The VERISTATE_LOG
// environment variable controls diagnostic verbosity.
package main

import (
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"veristate/actor"
	"veristate/actor/register"
	"veristate/checker"
	"veristate/examples/paxos"
	"veristate/examples/pingpong"
	"veristate/examples/twophase"
	"veristate/explorer"
	"veristate/fingerprint"
	"veristate/telemetry/logging"
)

// fileConfig carries defaults loadable from veristate.yaml.
type fileConfig struct {
	Threads           int    `yaml:"threads"`
	Metrics           string `yaml:"metrics"`
	Address           string `yaml:"address"`
	RmCount           int    `yaml:"rm_count"`
	ClientCount       int    `yaml:"client_count"`
	ServerCount       int    `yaml:"server_count"`
	Network           string `yaml:"network"`
	MaxNat            uint32 `yaml:"max_nat"`
	SimulationSeconds int    `yaml:"simulation_seconds"`
}

func loadConfig() fileConfig {
	cfg := fileConfig{
		Threads:           runtime.NumCPU(),
		Address:           "localhost:3000",
		RmCount:           2,
		ClientCount:       2,
		ServerCount:       3,
		Network:           "unordered-nonduplicating",
		MaxNat:            5,
		SimulationSeconds: 10,
	}
	raw, err := os.ReadFile("veristate.yaml")
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "ignoring malformed veristate.yaml: %v\n", err)
	}
	return cfg
}

func usage() int {
	fmt.Println("USAGE:")
	fmt.Println("  veristate check            <2pc|paxos|pingpong> [args]")
	fmt.Println("  veristate check-bfs        <2pc|paxos|pingpong> [args]")
	fmt.Println("  veristate check-dfs        <2pc|paxos|pingpong> [args]")
	fmt.Println("  veristate check-simulation <2pc|paxos|pingpong> [args]")
	fmt.Println("  veristate explore          <2pc|paxos|pingpong> [ADDRESS] [args]")
	fmt.Println("  veristate spawn            pingpong")
	fmt.Println()
	fmt.Println("MODEL ARGS:")
	fmt.Println("  2pc      [RESOURCE_MANAGER_COUNT]")
	fmt.Printf("  paxos    [CLIENT_COUNT] [NETWORK]   NETWORK: %v\n", actor.NetworkVariantNames())
	fmt.Println("  pingpong [MAX_NAT]")
	return 2
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		return usage()
	}
	cfg := loadConfig()
	mode, model := args[0], args[1]
	rest := args[2:]

	switch mode {
	case "check", "check-bfs", "check-dfs", "check-simulation":
	case "explore":
		if len(rest) > 0 {
			cfg.Address = rest[0]
			rest = rest[1:]
		}
	case "spawn":
		return spawnPingPong(cfg)
	default:
		return usage()
	}

	switch model {
	case "2pc":
		if len(rest) > 0 {
			cfg.RmCount = atoiOr(rest[0], cfg.RmCount)
		}
		fmt.Printf("Two-phase commit with %d resource managers.\n", cfg.RmCount)
		sys := twophase.Sys{RmCount: cfg.RmCount}
		b := checker.New[twophase.State, twophase.Action](sys).
			Threads(cfg.Threads).MetricsBackend(cfg.Metrics).Logger(logging.New())
		return dispatch(mode, cfg, sys, b)

	case "paxos":
		if len(rest) > 0 {
			cfg.ClientCount = atoiOr(rest[0], cfg.ClientCount)
		}
		if len(rest) > 1 {
			cfg.Network = rest[1]
		}
		variant, err := actor.ParseNetworkVariant(cfg.Network)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		fmt.Printf("Single Decree Paxos with %d clients on a %s network.\n", cfg.ClientCount, variant)
		model := paxos.Cfg{
			ClientCount: cfg.ClientCount,
			ServerCount: cfg.ServerCount,
			Network:     actor.NewNetwork[register.Msg[paxos.Msg]](variant),
		}.IntoModel()
		b := checker.New[paxos.State, paxos.Action](model).
			Threads(cfg.Threads).MetricsBackend(cfg.Metrics).Logger(logging.New())
		return dispatch(mode, cfg, model, b)

	case "pingpong":
		if len(rest) > 0 {
			cfg.MaxNat = uint32(atoiOr(rest[0], int(cfg.MaxNat)))
		}
		fmt.Printf("Lossy duplicating ping pong up to %d.\n", cfg.MaxNat)
		model := pingpong.Cfg{MaxNat: cfg.MaxNat}.IntoModel().LossyNetwork(true)
		b := checker.New[pingpong.State, pingpong.Action](model).
			Threads(cfg.Threads).MetricsBackend(cfg.Metrics).Logger(logging.New())
		return dispatch(mode, cfg, model, b)
	}
	return usage()
}

// dispatch runs or serves one configured model.
func dispatch[S fingerprint.Hasher, A any](mode string, cfg fileConfig, model checker.Model[S, A], b *checker.Builder[S, A]) int {
	if mode == "explore" {
		e := explorer.New(model, b, logging.New())
		if err := e.Serve(cfg.Address); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	var c checker.Checker[S, A]
	switch mode {
	case "check", "check-bfs":
		c = b.SpawnBFS()
	case "check-dfs":
		c = b.SpawnDFS()
	case "check-simulation":
		c = b.SpawnSimulation(uint64(time.Now().UnixNano()), checker.UniformChooser[S, A])
		// Simulation only stops once every property is decided; impose
		// the configured deadline by polling and cancelling.
		go func() {
			deadline := time.After(time.Duration(cfg.SimulationSeconds) * time.Second)
			for {
				select {
				case <-deadline:
					c.Cancel()
					return
				case <-time.After(100 * time.Millisecond):
					if c.IsDone() {
						return
					}
				}
			}
		}()
	}

	checker.Report[S, A](c, checker.WriteReporter[S, A]{W: os.Stdout}, time.Second)
	if err := c.Join(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// Exit 0 iff no safety or liveness property was falsified; witness
	// discoveries for sometimes properties are successes.
	code := 0
	for _, p := range model.Properties() {
		if _, found := c.Discovery(p.Name); found && p.Expectation != checker.SometimesExpectation {
			code = 1
		}
	}
	return code
}

// spawnPingPong runs the ping-pong actors over real UDP sockets.
func spawnPingPong(cfg fileConfig) int {
	log := logging.New()
	pingerID := actor.FromAddr(mustAddr("127.0.0.1:3000"))
	pongerID := actor.FromAddr(mustAddr("127.0.0.1:3001"))

	fmt.Println("A ping-pong pair over JSON/UDP.")
	fmt.Println("Observe with `sudo tcpdump -i lo -s 0 -nnX udp port 3000` or talk to")
	fmt.Println("them with `nc -u localhost 3000`.")

	ponger, err := actor.Spawn[pingpong.Msg, pingpong.Count, actor.NoTimer](
		pongerID, pingpong.PingPonger{}, actor.SpawnOptions[pingpong.Msg]{Logger: log})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer ponger.Stop()

	pinger, err := actor.Spawn[pingpong.Msg, pingpong.Count, actor.NoTimer](
		pingerID, pingpong.PingPonger{ServeTo: &pongerID}, actor.SpawnOptions[pingpong.Msg]{Logger: log})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer pinger.Stop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	return 0
}

func mustAddr(raw string) netip.AddrPort {
	addr, err := netip.ParseAddrPort(raw)
	if err != nil {
		panic(err)
	}
	return addr
}

func atoiOr(s string, fallback int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return fallback
}
