package main

import (
	"flag"
	"runtime"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxterra"
	"github.com/gekko3d/voxterra/collision"
	"github.com/gekko3d/voxterra/gpu"
	"github.com/gekko3d/voxterra/heightmap"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	seed := flag.Int64("seed", 7, "Terrain noise seed")
	flag.Parse()

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(1280, 720, "Voxterra Viewer", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	instance := wgpu.CreateInstance(nil)
	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		panic(err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		panic(err)
	}
	queue := device.GetQueue()

	width, height := window.GetFramebufferSize()
	caps := surface.GetCapabilities(adapter)
	config := &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, config)

	targets := gpu.NewTargetManager(device, queue)
	defer targets.Dispose()

	engine, err := voxterra.NewEngine(voxterra.Config{
		Seed:     *seed,
		Renderer: targets,
		Logger:   voxterra.NewDefaultLogger("voxterra", *debug),
	})
	if err != nil {
		panic(err)
	}
	defer engine.Dispose()

	// Keep the camera's surroundings resident at full precision.
	for y := -1; y <= 1; y++ {
		for x := -1; x <= 1; x++ {
			view, err := engine.Atlas().GetTileView(heightmap.TileCoord{Level: 0, X: x, Y: y})
			if err != nil {
				panic(err)
			}
			view.UseOptimalData()
		}
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		if width == 0 || height == 0 {
			return
		}
		config.Width = uint32(width)
		config.Height = uint32(height)
		surface.Configure(adapter, device, config)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})

	player := collision.Cylinder{
		Position: mgl32.Vec3{0.5, 80, 0.5},
		Radius:   0.4,
		Height:   1.8,
	}
	velocity := mgl32.Vec3{}
	last := time.Now()

	for !window.ShouldClose() {
		glfw.PollEvents()

		now := time.Now()
		dt := float32(now.Sub(last).Seconds())
		last = now
		if dt > 0.1 {
			dt = 0.1
		}

		engine.Update()

		res, err := engine.Collisions().EntityMovement(player, collision.MovementOptions{
			Velocity:  velocity,
			DeltaTime: dt,
			Gravity:   25,
			Missing:   collision.MissingVoxelPolicy{ConsiderAsBlocking: true},
		})
		if err != nil {
			panic(err)
		}
		player.Position = res.Position
		velocity = res.Velocity

		renderFrame(device, queue, surface)
	}
}

// renderFrame clears the swapchain to the sky color. Terrain and prop
// passes bind the target manager's textures here once their pipelines land.
func renderFrame(device *wgpu.Device, queue *wgpu.Queue, surface *wgpu.Surface) {
	nextTexture, err := surface.GetCurrentTexture()
	if err != nil {
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		return
	}
	defer view.Release()

	encoder, err := device.CreateCommandEncoder(nil)
	if err != nil {
		return
	}

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.53, G: 0.73, B: 0.92, A: 1},
		}},
	})
	if err := pass.End(); err != nil {
		return
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return
	}
	queue.Submit(cmd)
	surface.Present()
}
