package memoria

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/archivos"
)

// entornoDePrueba arma un pool de marcos con su swap y métricas
func entornoDePrueba(t *testing.T, marcos int, slots int) (*TablaMarcos, *DispositivoSwap, *RegistroMetricas) {
	t.Helper()

	swap, err := NuevoDispositivoSwap(filepath.Join(t.TempDir(), "swapfile.bin"), slots, 0)
	require.NoError(t, err)
	t.Cleanup(func() { swap.Cerrar() })

	metricas := NuevoRegistroMetricas()
	tabla := NuevaTablaMarcos(marcos*TamPagina, swap, metricas, 0)
	return tabla, swap, metricas
}

func espacioDePrueba(pid int) *Espacio {
	return NuevoEspacio(pid, NuevoDirectorio())
}

// sistemaDePrueba crea un filesystem sobre un directorio temporal
func sistemaDePrueba(t *testing.T) *archivos.SistemaDirectorio {
	t.Helper()
	fs, err := archivos.NuevoSistemaDirectorio(t.TempDir())
	require.NoError(t, err)
	return fs
}

// crearArchivo crea un archivo con contenido y devuelve un handle abierto
func crearArchivo(t *testing.T, fs *archivos.SistemaDirectorio, nombre string, datos []byte) archivos.Archivo {
	t.Helper()
	require.NoError(t, fs.Crear(nombre, int64(len(datos))))
	archivo, err := fs.Abrir(nombre)
	require.NoError(t, err)
	if len(datos) > 0 {
		_, err = archivo.EscribirEn(datos, 0)
		require.NoError(t, err)
	}
	t.Cleanup(func() { archivo.Cerrar() })
	return archivo
}

// patron genera contenido reconocible para verificar round-trips
func patron(semilla byte, n int) []byte {
	datos := make([]byte, n)
	for i := range datos {
		datos[i] = semilla + byte(i%31)
	}
	return datos
}
