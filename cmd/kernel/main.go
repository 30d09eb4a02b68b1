package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/archivos"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/memoria"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/nucleo"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

var (
	rutaConfig string
	programa   string
)

func main() {
	raiz := &cobra.Command{
		Use:   "kernel",
		Short: "Kernel didáctico con memoria virtual por demanda",
		RunE:  correr,
	}
	raiz.Flags().StringVarP(&rutaConfig, "config", "c", "", "ruta del archivo de configuración")
	raiz.Flags().StringVarP(&programa, "programa", "p", "", "ejecutable inicial a lanzar")

	if err := raiz.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func correr(cmd *cobra.Command, args []string) error {
	utils.CargarEntorno()
	ruta := utils.RutaConfigDesdeEntorno(rutaConfig, "KERNEL_CONFIG", "configs/kernel-config.json")

	if _, err := os.Stat(ruta); os.IsNotExist(err) {
		return fmt.Errorf("el archivo de configuración no existe: %s", ruta)
	}

	config := utils.CargarConfiguracion[nucleo.Config](ruta)
	utils.InicializarLogger(config.LogLevel, "Kernel")
	utils.InfoLog.Info("Configuración cargada", "nivel_log", config.LogLevel, "config_path", ruta)

	fs, err := archivos.NuevoSistemaDirectorio(config.RutaFS)
	if err != nil {
		return err
	}

	kernel, err := nucleo.NuevoKernel(config, fs)
	if err != nil {
		return err
	}

	iniciarMonitor(kernel, config)

	if programa != "" {
		pid := kernel.Ejecutar(programa, nil)
		if pid == -1 {
			return fmt.Errorf("no se pudo ejecutar el programa inicial %q", programa)
		}
		utils.InfoLog.Info("Programa inicial lanzado", "pid", pid, "cmdline", programa)
	}

	utils.InfoLog.Info("Kernel inicializado correctamente")

	// Mantener el kernel corriendo
	select {}
}

func iniciarMonitor(kernel *nucleo.Kernel, config *nucleo.Config) {
	monitor := utils.NuevoMonitor(config.IPMonitor, config.PuertoMonitor, "Kernel")

	monitor.RegistrarRuta("/metricas", func(vars map[string]string) (interface{}, error) {
		return map[string]interface{}{
			"fallos_totales": kernel.Metricas.FallosTotales(),
			"slots_swap":     kernel.Swap.SlotsUsados(),
			"marcos_libres":  kernel.Marcos.Libres(),
			"por_proceso":    kernel.Metricas.Todas(),
		}, nil
	})

	monitor.RegistrarRuta("/dump/{pid}", func(vars map[string]string) (interface{}, error) {
		var pid int
		if _, err := fmt.Sscanf(vars["pid"], "%d", &pid); err != nil {
			return nil, fmt.Errorf("pid inválido: %v", err)
		}
		proceso := kernel.Proceso(pid)
		if proceso == nil {
			return nil, fmt.Errorf("no existe el proceso %d", pid)
		}
		ruta, err := memoria.VolcarEspacio(proceso.Espacio, kernel.Marcos, kernel.RutaDump)
		if err != nil {
			return nil, err
		}
		return map[string]string{"archivo": ruta}, nil
	})

	go func() {
		if err := monitor.Iniciar(); err != nil {
			utils.ErrorLog.Error("Error al iniciar el monitor HTTP", "error", err)
			os.Exit(1)
		}
	}()
}
