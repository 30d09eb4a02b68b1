package nucleo

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/archivos"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/memoria"
)

// tecladoFijo siempre devuelve el mismo carácter
type tecladoFijo struct {
	caracter byte
}

func (t tecladoFijo) ObtenerCaracter() byte {
	return t.caracter
}

// kernelDePrueba arma un kernel chico con consola y teclado capturados
func kernelDePrueba(t *testing.T, marcos int, slots int) (*Kernel, *archivos.SistemaDirectorio, *bytes.Buffer) {
	t.Helper()

	raiz := t.TempDir()
	fs, err := archivos.NuevoSistemaDirectorio(filepath.Join(raiz, "discos"))
	require.NoError(t, err)

	config := &Config{
		TamMemoria: marcos * memoria.TamPagina,
		SlotsSwap:  slots,
		RutaSwap:   filepath.Join(raiz, "swap", "swapfile.bin"),
		RutaDump:   filepath.Join(raiz, "dumps"),
	}

	kernel, err := NuevoKernel(config, fs)
	require.NoError(t, err)
	t.Cleanup(func() { kernel.Swap.Cerrar() })

	consola := &bytes.Buffer{}
	kernel.Consola = consola
	kernel.Teclado = tecladoFijo{caracter: 'x'}
	kernel.Apagar = func() {}

	return kernel, fs, consola
}

// crearArchivoFS deja un archivo con contenido en el filesystem simulado
func crearArchivoFS(t *testing.T, fs *archivos.SistemaDirectorio, nombre string, datos []byte) {
	t.Helper()
	require.NoError(t, fs.Crear(nombre, int64(len(datos))))
	if len(datos) > 0 {
		archivo, err := fs.Abrir(nombre)
		require.NoError(t, err)
		defer archivo.Cerrar()
		_, err = archivo.EscribirEn(datos, 0)
		require.NoError(t, err)
	}
}

// leerArchivoFS lee el contenido actual de un archivo del FS simulado
func leerArchivoFS(t *testing.T, fs *archivos.SistemaDirectorio, nombre string, n int, offset int64) []byte {
	t.Helper()
	archivo, err := fs.Abrir(nombre)
	require.NoError(t, err)
	defer archivo.Cerrar()

	datos := make([]byte, n)
	_, err = archivo.LeerEn(datos, offset)
	require.NoError(t, err)
	return datos
}

// escribirCadena deja una cadena NUL-terminada en memoria de usuario
func escribirCadena(c *Contexto, dir uint32, s string) {
	c.EscribirMemoria(dir, append([]byte(s), 0))
}

func patron(semilla byte, n int) []byte {
	datos := make([]byte, n)
	for i := range datos {
		datos[i] = semilla + byte(i%31)
	}
	return datos
}
